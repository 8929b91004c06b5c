package constants

// 键值后端中的 Key 约定
// 简历记录与浏览器时代的 localStorage 布局保持一致，便于迁移旧数据
const (
	// ResumeKeyPrefix 单条简历记录 (STRING, JSON)
	// 格式: resume_{resumeID}
	ResumeKeyPrefix = "resume_"

	// ProbeKeyPrefix 写入前探测剩余空间用的临时 Key，写入后立即删除
	// 格式: test_{uuid}
	ProbeKeyPrefix = "test_"

	// ApplicantsKey 全部职位申请列表 (STRING, JSON 数组)，每条申请内嵌一份简历副本
	ApplicantsKey = "careerPlatformApplicants"

	// ApplicantsProbeKey 保存申请列表前的容量探测 Key
	ApplicantsProbeKey = "test_global_applicants"
)

// ResumeKey 返回简历记录的 Key
func ResumeKey(resumeID string) string {
	return ResumeKeyPrefix + resumeID
}
