package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModelPresetVoting(t *testing.T) {
	cases := map[ModelPreset][2]int{
		ModelPrimary: {1, 1},
		ModelVote2:   {1, 2},
		ModelVote4:   {2, 4},
	}
	for preset, want := range cases {
		vote, orient := preset.Voting()
		require.Equal(t, want[0], vote, preset)
		require.Equal(t, want[1], orient, preset)
	}

	p, err := ParseModelPreset("yolov11-vote4")
	require.NoError(t, err)
	require.Equal(t, ModelVote4, p)
	_, err = ParseModelPreset("resnet")
	require.Error(t, err)
}

func TestThresholdsValidate(t *testing.T) {
	require.NoError(t, DefaultThresholds().Validate())
	require.Error(t, Thresholds{IoU: 0.05, Confidence: 0.4}.Validate())
	require.Error(t, Thresholds{IoU: 0.5, Confidence: 1.2}.Validate())
}

func TestThresholdsParams(t *testing.T) {
	th := Thresholds{IoU: 0.5, Confidence: 0.3, Model: ModelVote2}
	p := th.Params(&ImageAsset{DisplayWidth: 600, DisplayHeight: 300})
	require.Equal(t, DetectionParams{
		VoteThreshold:       1,
		OrientationCount:    2,
		IoUThreshold:        0.5,
		ConfidenceThreshold: 0.3,
		ImageWidth:          600,
		ImageHeight:         300,
	}, p)
}

func TestClassifyCameraError(t *testing.T) {
	require.Nil(t, ClassifyCameraError(nil))
	require.Equal(t, CameraPermissionDenied, ClassifyCameraError(errors.New("NotAllowedError: Permission denied")).Reason)
	require.Equal(t, CameraNotFound, ClassifyCameraError(errors.New("Error opening device: no such device 3")).Reason)
	require.Equal(t, CameraBusy, ClassifyCameraError(errors.New("VIDIOC_STREAMON: Device or resource busy")).Reason)
	require.Equal(t, CameraOther, ClassifyCameraError(errors.New("boom")).Reason)

	orig := &CameraAcquisitionError{Reason: CameraBusy}
	require.Same(t, orig, ClassifyCameraError(orig))
}
