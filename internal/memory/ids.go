package memory

import (
	"fmt"
	"sync"
	"time"
)

// IDGenerator 生成人类可读的前缀 ID,如 fact_20251215_103000_001
type IDGenerator interface {
	Generate(prefix string) string
}

// TimestampIDGenerator 以"前缀_日期_时间_序号"格式生成 ID
// 同一秒内用递增序号保证进程内唯一
type TimestampIDGenerator struct {
	mu        sync.Mutex
	lastStamp string
	seq       int
	now       func() time.Time
}

// NewIDGenerator 创建默认 ID 生成器
func NewIDGenerator() *TimestampIDGenerator {
	return &TimestampIDGenerator{now: time.Now}
}

// Generate 生成一个带前缀的 ID
func (g *TimestampIDGenerator) Generate(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	stamp := g.now().Format("20060102_150405")
	if stamp == g.lastStamp {
		g.seq++
	} else {
		g.lastStamp = stamp
		g.seq = 1
	}

	return fmt.Sprintf("%s_%s_%03d", prefix, stamp, g.seq)
}
