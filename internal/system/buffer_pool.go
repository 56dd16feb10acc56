package system

import (
	"image"
	"sync"
)

// ImagePool предоставляет механизмы повторного использования image.RGBA и image.Gray
// для снижения нагрузки на Garbage Collector (GC) при повторных сканированиях
// кадров одного размера (live-режим, пакетная обработка).
type ImagePool struct {
	rgba map[image.Rectangle]*sync.Pool
	gray map[image.Rectangle]*sync.Pool
	mu   sync.RWMutex
}

// NewImagePool создает пустой пул.
func NewImagePool() *ImagePool {
	return &ImagePool{
		rgba: make(map[image.Rectangle]*sync.Pool),
		gray: make(map[image.Rectangle]*sync.Pool),
	}
}

var globalPool = NewImagePool()

// GetImage возвращает экземпляр *image.RGBA из глобального пула или создает новый.
// Содержимое пикселей не очищается: вызывающий код перезаписывает весь буфер.
func GetImage(rect image.Rectangle) *image.RGBA {
	return globalPool.GetRGBA(rect)
}

// PutImage возвращает экземпляр *image.RGBA в глобальный пул.
func PutImage(img *image.RGBA) {
	globalPool.PutRGBA(img)
}

// GetGray возвращает экземпляр *image.Gray из глобального пула или создает новый.
func GetGray(rect image.Rectangle) *image.Gray {
	return globalPool.GetGray(rect)
}

// PutGray возвращает экземпляр *image.Gray в глобальный пул.
func PutGray(img *image.Gray) {
	globalPool.PutGray(img)
}

func (p *ImagePool) poolFor(pools map[image.Rectangle]*sync.Pool, rect image.Rectangle, newFn func() interface{}) *sync.Pool {
	p.mu.RLock()
	pool, exists := pools[rect]
	p.mu.RUnlock()
	if exists {
		return pool
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Double check
	if pool, exists = pools[rect]; !exists {
		pool = &sync.Pool{New: newFn}
		pools[rect] = pool
	}
	return pool
}

func (p *ImagePool) GetRGBA(rect image.Rectangle) *image.RGBA {
	pool := p.poolFor(p.rgba, rect, func() interface{} {
		return image.NewRGBA(rect)
	})
	return pool.Get().(*image.RGBA)
}

func (p *ImagePool) PutRGBA(img *image.RGBA) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.rgba[img.Rect]
	p.mu.RUnlock()
	if exists {
		pool.Put(img)
	}
}

func (p *ImagePool) GetGray(rect image.Rectangle) *image.Gray {
	pool := p.poolFor(p.gray, rect, func() interface{} {
		return image.NewGray(rect)
	})
	return pool.Get().(*image.Gray)
}

func (p *ImagePool) PutGray(img *image.Gray) {
	if img == nil {
		return
	}
	p.mu.RLock()
	pool, exists := p.gray[img.Rect]
	p.mu.RUnlock()
	if exists {
		pool.Put(img)
	}
}
