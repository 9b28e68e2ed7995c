package storage

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/annel0/microblock/internal/vec"
)

// CompressedRepo адаптирует любой ShapeRepo, сжимая значения zstd
type CompressedRepo struct {
	inner        ShapeRepo
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewCompressedRepo оборачивает inner
func NewCompressedRepo(inner ShapeRepo) (*CompressedRepo, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("не удалось создать компрессор: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("не удалось создать декомпрессор: %w", err)
	}
	return &CompressedRepo{inner: inner, compressor: enc, decompressor: dec}, nil
}

// Save сжимает blob и сохраняет во внутреннее хранилище
func (c *CompressedRepo) Save(ctx context.Context, pos vec.Vec3, blob []byte) error {
	return c.inner.Save(ctx, pos, c.compressor.EncodeAll(blob, nil))
}

// Load читает и распаковывает blob
func (c *CompressedRepo) Load(ctx context.Context, pos vec.Vec3) ([]byte, bool, error) {
	data, found, err := c.inner.Load(ctx, pos)
	if err != nil || !found {
		return nil, found, err
	}
	blob, err := c.decompressor.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка распаковки %s: %w", pos, err)
	}
	return blob, true, nil
}

// Delete удаляет запись
func (c *CompressedRepo) Delete(ctx context.Context, pos vec.Vec3) error {
	return c.inner.Delete(ctx, pos)
}

// BatchSave сжимает каждый blob пакета
func (c *CompressedRepo) BatchSave(ctx context.Context, blobs map[vec.Vec3][]byte) error {
	packed := make(map[vec.Vec3][]byte, len(blobs))
	for pos, blob := range blobs {
		packed[pos] = c.compressor.EncodeAll(blob, nil)
	}
	return c.inner.BatchSave(ctx, packed)
}

// Positions делегирует внутреннему хранилищу
func (c *CompressedRepo) Positions(ctx context.Context) ([]vec.Vec3, error) {
	return c.inner.Positions(ctx)
}

// Close закрывает кодеки и внутреннее хранилище
func (c *CompressedRepo) Close() error {
	c.compressor.Close()
	c.decompressor.Close()
	return c.inner.Close()
}
