package audio

import (
	"sync"
)

// BlockerConfig 配置
type BlockerConfig struct {
	BlockSize int // 每块采样点数
}

// DefaultBlockerConfig 返回默认配置
func DefaultBlockerConfig() BlockerConfig {
	return BlockerConfig{
		BlockSize: DefaultBlockSize,
	}
}

// Blocker 将设备回调送来的任意长度采样切分为固定长度的块
// 只做缓冲和切分，不做重采样
//
// 主要功能:
//   - 固定块长输出（默认 4096 采样点）
//   - 最多只缓存一个不完整的块
//   - Reset 时丢弃残留数据
type Blocker struct {
	mu        sync.Mutex
	buffer    []float32
	blockSize int
}

// NewBlocker 创建新的 Blocker (使用默认配置)
func NewBlocker() *Blocker {
	return NewBlockerWithConfig(DefaultBlockerConfig())
}

// NewBlockerWithConfig 创建新的 Blocker (使用自定义配置)
func NewBlockerWithConfig(cfg BlockerConfig) *Blocker {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	return &Blocker{
		buffer:    make([]float32, 0, cfg.BlockSize*2),
		blockSize: cfg.BlockSize,
	}
}

// Write 写入采样数据，并为每个凑满的块调用 emit。
// emit 按采集顺序被调用，不能阻塞，也不能回调 Blocker 自身。
func (b *Blocker) Write(samples []float32, emit func(block []float32)) {
	if len(samples) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.buffer, samples...)
	n := 0
	for len(data)-n >= b.blockSize {
		block := make([]float32, b.blockSize)
		copy(block, data[n:n+b.blockSize])
		n += b.blockSize
		// 持锁回调，保证并发写入时块仍按采集顺序输出
		emit(block)
	}
	// 残留数据移到头部，复用底层数组
	b.buffer = append(data[:0], data[n:]...)
}

// Pending 返回当前缓存的不完整块的采样点数
func (b *Blocker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// BlockSize 返回块长
func (b *Blocker) BlockSize() int {
	return b.blockSize
}

// Reset 丢弃残留数据
func (b *Blocker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = b.buffer[:0]
}
