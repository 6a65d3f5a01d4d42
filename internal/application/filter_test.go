package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defect-console/internal/domain/entity"
)

func TestApplyFilter_AllKeepsOrder(t *testing.T) {
	res := resultWith(entity.DefectSpur, entity.DefectShort, entity.DefectSpur)
	got := ApplyFilter(res, "all")
	require.Equal(t, res.Defects, got)
	require.Equal(t, res.Defects, ApplyFilter(res, ""))
	require.Empty(t, ApplyFilter(nil, "all"))
}

func TestApplyFilter_CaseInsensitiveStableSubset(t *testing.T) {
	res := resultWith(entity.DefectSpur, entity.DefectShort, entity.DefectSpur)
	res.Defects[1].Type = "Short"

	spurs := ApplyFilter(res, "SPUR")
	require.Len(t, spurs, 2)
	require.Equal(t, res.Defects[0], spurs[0])
	require.Equal(t, res.Defects[2], spurs[1])

	shorts := ApplyFilter(res, "short")
	require.Len(t, shorts, 1)
	require.Empty(t, ApplyFilter(res, "open_circuit"))
}

func TestApplyFilter_RoundTrip(t *testing.T) {
	res := resultWith(entity.DefectMouseBite, entity.DefectShort, entity.DefectMouseBite)
	first := ApplyFilter(res, "mouse_bite")
	all := ApplyFilter(res, "all")
	second := ApplyFilter(res, "mouse_bite")
	require.Equal(t, first, second)
	require.Len(t, all, 3)
}

func TestResultFilter_OptionsGrowUntilReset(t *testing.T) {
	f := NewResultFilter()
	require.Equal(t, []string{"all"}, f.Options())

	f.Observe(resultWith(entity.DefectSpur))
	f.Observe(resultWith("Short", entity.DefectSpur))
	f.Observe(entity.EmptyResult())
	require.Equal(t, []string{"all", "short", "spur"}, f.Options())

	require.True(t, f.Select("Spur"))
	require.False(t, f.Select("spur"))
	require.Equal(t, "spur", f.Selector())
	require.Len(t, f.Apply(resultWith(entity.DefectSpur, entity.DefectShort)), 1)

	f.Reset()
	require.Equal(t, []string{"all"}, f.Options())
	require.Equal(t, FilterAll, f.Selector())
}
