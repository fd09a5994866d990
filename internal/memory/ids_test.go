package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIDGenerator_Format(t *testing.T) {
	fixed := time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC)
	gen := &TimestampIDGenerator{now: func() time.Time { return fixed }}

	id := gen.Generate("fact")
	require.Equal(t, "fact_20251215_103000_001", id)
}

func TestIDGenerator_SequenceWithinSecond(t *testing.T) {
	fixed := time.Date(2025, 12, 15, 10, 30, 0, 0, time.UTC)
	gen := &TimestampIDGenerator{now: func() time.Time { return fixed }}

	first := gen.Generate("dossier")
	second := gen.Generate("dossier")
	require.Equal(t, "dossier_20251215_103000_001", first)
	require.Equal(t, "dossier_20251215_103000_002", second)

	// 跨秒后序号归位
	fixed = fixed.Add(time.Second)
	third := gen.Generate("dossier")
	require.Equal(t, "dossier_20251215_103001_001", third)
}
