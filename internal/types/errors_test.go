package types_test

import (
	"errors"
	"fmt"
	"testing"

	"resume-store-go/internal/types"

	"github.com/stretchr/testify/assert"
)

func TestResumeErrorIs(t *testing.T) {
	primary := errors.New("structured put failed")
	retry := types.NewQuotaError("resume_1_u1", "quota", nil)
	err := types.NewStorageError("resume_1_u1", "save", "both backends failed", errors.Join(primary, retry))

	assert.ErrorIs(t, err, types.ErrStorage)
	assert.ErrorIs(t, err, primary)
	assert.ErrorIs(t, err, types.ErrQuotaExceeded, "retry cause should stay reachable")
	assert.NotErrorIs(t, err, types.ErrValidation)

	var re *types.ResumeError
	if assert.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &re) {
		assert.Equal(t, "save", re.Op)
		assert.Equal(t, "resume_1_u1", re.ResumeID)
	}
	assert.Contains(t, err.Error(), "both backends failed")
}

func TestFileCandidateExtension(t *testing.T) {
	assert.Equal(t, "pdf", types.FileCandidate{Name: "My.Resume.PDF"}.Extension())
	assert.Equal(t, "jpeg", types.FileCandidate{Name: "photo.jpeg"}.Extension())
	assert.Equal(t, "noext", types.FileCandidate{Name: "NoExt"}.Extension())
	assert.Equal(t, "", types.FileCandidate{Name: "trailing."}.Extension())
}

func TestResumeRecordClone(t *testing.T) {
	appID := "app_1"
	r := &types.ResumeRecord{ID: "resume_1_u1", ApplicationID: &appID, Blob: []byte{1, 2}}
	c := r.Clone()
	*c.ApplicationID = "app_2"
	c.Blob[0] = 9
	assert.Equal(t, "app_1", *r.ApplicationID)
	assert.Equal(t, byte(1), r.Blob[0])
	assert.True(t, r.HasPayload())
	assert.False(t, (&types.ResumeRecord{}).HasPayload())
	assert.Nil(t, (*types.ResumeRecord)(nil).Clone())
}
