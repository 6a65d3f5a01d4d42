package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defect-console/internal/domain/entity"
)

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := MultiSink{a, nil, b}

	sink.Publish(entity.Notify(entity.LevelInfo, "camera started"))

	require.Len(t, a.Events(entity.EventNotification), 1)
	require.Len(t, b.Events(entity.EventNotification), 1)
}
