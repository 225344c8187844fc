package model

// kvCache holds per-layer key and value vectors for every context
// position, flat in one allocation per side. Keys are stored exactly as
// produced by the projection; position rotation happens at attention time.
type kvCache struct {
	k      []float32
	v      []float32
	layers int
	ctx    int
	dim    int
}

func newKVCache(layers, ctx, dim int) *kvCache {
	n := layers * ctx * dim
	return &kvCache{
		k:      make([]float32, n),
		v:      make([]float32, n),
		layers: layers,
		ctx:    ctx,
		dim:    dim,
	}
}

func (c *kvCache) offset(layer, pos int) int {
	if layer < 0 || layer >= c.layers || pos < 0 || pos >= c.ctx {
		panic("model: kv cache index out of range")
	}
	return (layer*c.ctx + pos) * c.dim
}

// write stores the key and value vectors for one position of one layer.
func (c *kvCache) write(layer, pos int, k, v []float32) {
	off := c.offset(layer, pos)
	copy(c.k[off:off+c.dim], k)
	copy(c.v[off:off+c.dim], v)
}

// key returns the stored (unrotated) key vector for one position.
func (c *kvCache) key(layer, pos int) []float32 {
	off := c.offset(layer, pos)
	return c.k[off : off+c.dim]
}

// value returns the stored value vector for one position.
func (c *kvCache) value(layer, pos int) []float32 {
	off := c.offset(layer, pos)
	return c.v[off : off+c.dim]
}
