//go:build !gocv
// +build !gocv

package camera

import (
	"context"
	"errors"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// Open возвращает ошибку, если сборка без тега gocv.
func (d *Device) Open(ctx context.Context, preferred port.Resolution) (port.VideoSource, error) {
	_ = ctx
	_ = preferred
	d.log.WithField("device", d.source).Warn("camera requested but gocv build tag is not enabled")
	return nil, &entity.CameraAcquisitionError{Reason: entity.CameraNotFound, Err: errors.New("gocv build tag is not enabled")}
}
