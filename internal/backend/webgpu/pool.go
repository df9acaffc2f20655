package webgpu

import "sync"

// sizeClass represents different buffer size categories for pooling.
type sizeClass int

const (
	// smallBuffer for storage < 4KB.
	smallBuffer sizeClass = iota
	// mediumBuffer for storage 4KB-1MB.
	mediumBuffer
	// largeBuffer for storage > 1MB.
	largeBuffer
	numSizeClasses
)

const (
	// Size thresholds for buffer categories.
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max buffers per category
)

// pooledBuffer wraps a device buffer with its capacity in bytes.
type pooledBuffer[B any] struct {
	buffer B
	size   uint64
}

// bufferPool reuses released device buffers to reduce allocation overhead.
// Buffers are categorized by size; a request is served by the first pooled
// buffer of its category that is large enough.
type bufferPool[B any] struct {
	create  func(size uint64) (B, error)
	destroy func(B)

	classes [numSizeClasses][]pooledBuffer[B]
	mu      sync.Mutex

	// Statistics
	totalAllocated uint64
	totalReleased  uint64
	poolHits       uint64
	poolMisses     uint64
}

// newBufferPool creates a pool that allocates with create and frees with
// destroy.
func newBufferPool[B any](create func(size uint64) (B, error), destroy func(B)) *bufferPool[B] {
	return &bufferPool[B]{create: create, destroy: destroy}
}

// acquire gets a buffer of at least size bytes from the pool or creates a
// new one. It returns the buffer and its actual capacity.
func (p *bufferPool[B]) acquire(size uint64) (B, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	class := categorize(size)
	for i, pb := range p.classes[class] {
		if pb.size >= size {
			p.classes[class] = append(p.classes[class][:i], p.classes[class][i+1:]...)
			p.poolHits++
			return pb.buffer, pb.size, nil
		}
	}

	// No suitable buffer found - create new one
	p.poolMisses++
	buf, err := p.create(size)
	if err != nil {
		var zero B
		return zero, 0, err
	}
	p.totalAllocated++
	return buf, size, nil
}

// release returns a buffer to the pool for reuse.
// If its category is full, the buffer is destroyed immediately.
func (p *bufferPool[B]) release(buf B, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalReleased++
	class := categorize(size)
	if len(p.classes[class]) >= maxPoolSize {
		p.destroy(buf)
		return
	}
	p.classes[class] = append(p.classes[class], pooledBuffer[B]{buffer: buf, size: size})
}

// clear destroys all pooled buffers.
func (p *bufferPool[B]) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for c := range p.classes {
		for _, pb := range p.classes[c] {
			p.destroy(pb.buffer)
		}
		p.classes[c] = p.classes[c][:0]
	}
}

// poolStats reports pool usage.
type poolStats struct {
	allocated   uint64
	released    uint64
	hits        uint64
	misses      uint64
	pooledCount int
}

// stats returns statistics about buffer pool usage.
func (p *bufferPool[B]) stats() poolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := poolStats{
		allocated: p.totalAllocated,
		released:  p.totalReleased,
		hits:      p.poolHits,
		misses:    p.poolMisses,
	}
	for _, c := range p.classes {
		s.pooledCount += len(c)
	}
	return s
}

// categorize determines the size category for a buffer.
func categorize(size uint64) sizeClass {
	if size < smallThreshold {
		return smallBuffer
	}
	if size < mediumThreshold {
		return mediumBuffer
	}
	return largeBuffer
}
