// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
)

// DefaultTimeout bounds every wait for submitted work.
const DefaultTimeout = 5 * time.Second

// pollInterval is the sleep between completion polls.
const pollInterval = 50 * time.Microsecond

// boundTexture is a texture with the view used for attachments.
type boundTexture struct {
	tex  hal.Texture
	view hal.TextureView
}

// boundPipeline is a pipeline with the bind groups set before each use, in
// group index order.
type boundPipeline[P any] struct {
	pipeline P
	groups   []hal.BindGroup
}

// section holds the two streams of an open parallel section.
type section struct {
	graphics, compute *stream
}

// submission is a queue submission whose command buffers are freed once
// the queue reports it completed.
type submission struct {
	index uint64
	cbs   []hal.CommandBuffer
}

// Target records framegraph commands into hal command encoders. It
// implements framegraph.CommandTarget and framegraph.SectionTimer.
//
// The main stream and each forked stream may be driven by different
// goroutines; bindings must not change while a frame is being recorded.
type Target struct {
	*stream

	device hal.Device
	queue  hal.Queue
	info   framegraph.DeviceInfo

	// Set when the target opened the device itself.
	instance interface{ Destroy() }
	owned    bool

	mu       sync.RWMutex
	buffers  map[framegraph.ResourceID]hal.Buffer
	textures map[framegraph.ResourceID]boundTexture
	compute  map[framegraph.PipelineID]boundPipeline[hal.ComputePipeline]
	render   map[framegraph.PipelineID]boundPipeline[hal.RenderPipeline]

	// Objects created by CreateBuffer/CreateTexture, destroyed on Close.
	createdBuffers  []hal.Buffer
	createdTextures []boundTexture

	sections map[int]*section
	timing   bool
	timings  map[int]framegraph.SectionSample

	subMu    sync.Mutex
	last     uint64
	inflight []submission
	timeout  time.Duration
	closed   bool
}

// Option configures a Target.
type Option func(*Target)

// WithTimeout sets how long WaitIdle and timed joins wait for the GPU.
func WithTimeout(d time.Duration) Option {
	return func(t *Target) { t.timeout = d }
}

// WithDeviceInfo sets the device description reported by Info. Targets
// built from a provider know nothing about the adapter otherwise.
func WithDeviceInfo(info framegraph.DeviceInfo) Option {
	return func(t *Target) { t.info = info }
}

// WithSectionTiming makes Join wait for both section streams and record
// the CPU-observed completion times for SectionTiming. This serializes the
// CPU with the GPU at every join; use it for A/B measurement only.
func WithSectionTiming() Option {
	return func(t *Target) { t.timing = true }
}

// New returns a target recording on device and submitting to queue.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Target, error) {
	t := &Target{
		device:   device,
		queue:    queue,
		buffers:  make(map[framegraph.ResourceID]hal.Buffer),
		textures: make(map[framegraph.ResourceID]boundTexture),
		compute:  make(map[framegraph.PipelineID]boundPipeline[hal.ComputePipeline]),
		render:   make(map[framegraph.PipelineID]boundPipeline[hal.RenderPipeline]),
		sections: make(map[int]*section),
		timings:  make(map[int]framegraph.SectionSample),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.stream = newStream(t, "main")
	return t, nil
}

// NewFromProvider returns a target sharing the device of an external
// provider. The provider must implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Target, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return New(device, queue, opts...)
}

// Open creates a standalone device on the given HAL backend, preferring a
// discrete or integrated GPU.
func Open(kind gputypes.Backend, opts ...Option) (*Target, error) {
	backend, ok := hal.GetBackend(kind)
	if !ok {
		return nil, fmt.Errorf("native: backend %v not available", kind)
	}
	return OpenBackend(backend, opts...)
}

// OpenBackend is Open for an explicit backend implementation.
func OpenBackend(backend hal.Backend, opts ...Option) (*Target, error) {
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	info := framegraph.DeviceInfo{
		Name:     selected.Info.Name,
		VendorID: selected.Info.VendorID,
		Type:     selected.Info.DeviceType,
	}
	if info.VendorID == 0 {
		info.VendorID = VendorFromName(info.Name)
	}
	t, err := New(openDev.Device, openDev.Queue, append([]Option{WithDeviceInfo(info)}, opts...)...)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	t.instance = instance
	t.owned = true
	framegraph.Logger().Info("native: device opened", "adapter", info.Name, "type", info.Type)
	return t, nil
}

// vendorNames maps adapter name fragments to PCI vendor IDs.
var vendorNames = []struct {
	fragment string
	id       uint32
}{
	{"nvidia", framegraph.VendorNVIDIA},
	{"geforce", framegraph.VendorNVIDIA},
	{"amd", framegraph.VendorAMD},
	{"radeon", framegraph.VendorAMD},
	{"intel", framegraph.VendorIntel},
	{"apple", framegraph.VendorApple},
	{"mali", framegraph.VendorARM},
	{"adreno", framegraph.VendorQualcomm},
}

// VendorFromName guesses the PCI vendor ID from an adapter name, or
// returns 0.
func VendorFromName(name string) uint32 {
	lower := strings.ToLower(name)
	for _, v := range vendorNames {
		if strings.Contains(lower, v.fragment) {
			return v.id
		}
	}
	return 0
}

// Info returns the device description, for the capability policy.
func (t *Target) Info() framegraph.DeviceInfo { return t.info }

// Device returns the HAL device.
func (t *Target) Device() hal.Device { return t.device }

// BindBuffer associates a framegraph buffer with a GPU buffer.
func (t *Target) BindBuffer(id framegraph.ResourceID, buf hal.Buffer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffers[id] = buf
}

// BindTexture associates a framegraph image with a texture and the view
// used when it is a render pass attachment.
func (t *Target) BindTexture(id framegraph.ResourceID, tex hal.Texture, view hal.TextureView) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.textures[id] = boundTexture{tex: tex, view: view}
}

// BindComputePipeline associates a PipelineID with a compute pipeline and
// its bind groups.
func (t *Target) BindComputePipeline(id framegraph.PipelineID, p hal.ComputePipeline, groups ...hal.BindGroup) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.compute[id] = boundPipeline[hal.ComputePipeline]{pipeline: p, groups: groups}
}

// BindRenderPipeline associates a PipelineID with a render pipeline and its
// bind groups.
func (t *Target) BindRenderPipeline(id framegraph.PipelineID, p hal.RenderPipeline, groups ...hal.BindGroup) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.render[id] = boundPipeline[hal.RenderPipeline]{pipeline: p, groups: groups}
}

// bufferUsage is every usage a framegraph buffer state can need.
const bufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageVertex |
	gputypes.BufferUsageIndirect | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

// CreateBuffer creates a buffer usable in every buffer state and binds it
// to id. It is destroyed by Close.
func (t *Target) CreateBuffer(id framegraph.ResourceID, size uint64) (hal.Buffer, error) {
	if id.Kind != framegraph.KindBuffer {
		return nil, fmt.Errorf("native: CreateBuffer(%s): not a buffer", id)
	}
	buf, err := t.device.CreateBuffer(&hal.BufferDescriptor{
		Label: id.String(),
		Size:  size,
		Usage: bufferUsage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create buffer %s: %w", id, err)
	}
	t.mu.Lock()
	t.buffers[id] = buf
	t.createdBuffers = append(t.createdBuffers, buf)
	t.mu.Unlock()
	return buf, nil
}

// CreateTexture creates a 2D texture usable in every state legal for the
// kind of id, with a default view, and binds it. It is destroyed by Close.
func (t *Target) CreateTexture(id framegraph.ResourceID, width, height uint32, format gputypes.TextureFormat) (hal.Texture, error) {
	if !id.Kind.IsImage() {
		return nil, fmt.Errorf("native: CreateTexture(%s): not an image", id)
	}
	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding |
		gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst
	if id.Kind == framegraph.KindColorImage {
		usage |= gputypes.TextureUsageStorageBinding
	}
	tex, err := t.device.CreateTexture(&hal.TextureDescriptor{
		Label:         id.String(),
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create texture %s: %w", id, err)
	}
	view, err := t.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: id.String() + "_view",
	})
	if err != nil {
		t.device.DestroyTexture(tex)
		return nil, fmt.Errorf("native: create view %s: %w", id, err)
	}
	bt := boundTexture{tex: tex, view: view}
	t.mu.Lock()
	t.textures[id] = bt
	t.createdTextures = append(t.createdTextures, bt)
	t.mu.Unlock()
	return tex, nil
}

func (t *Target) buffer(id framegraph.ResourceID) (hal.Buffer, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnboundResource, id)
	}
	return b, nil
}

func (t *Target) texture(id framegraph.ResourceID) (boundTexture, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bt, ok := t.textures[id]
	if !ok {
		return boundTexture{}, fmt.Errorf("%w: %s", ErrUnboundResource, id)
	}
	return bt, nil
}

func (t *Target) computePipeline(id framegraph.PipelineID) (boundPipeline[hal.ComputePipeline], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.compute[id]
	if !ok {
		return p, fmt.Errorf("%w: compute %d", ErrUnboundPipeline, id)
	}
	return p, nil
}

func (t *Target) renderPipeline(id framegraph.PipelineID) (boundPipeline[hal.RenderPipeline], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.render[id]
	if !ok {
		return p, fmt.Errorf("%w: render %d", ErrUnboundPipeline, id)
	}
	return p, nil
}

// BeginParallel implements framegraph.CommandTarget. Work recorded so far
// on the main stream is submitted first.
func (t *Target) BeginParallel(sec int, label string) (framegraph.CommandStream, framegraph.CommandStream, error) {
	if err := t.flush(t.stream); err != nil {
		return nil, nil, err
	}
	s := &section{
		graphics: newStream(t, label+"_graphics"),
		compute:  newStream(t, label+"_compute"),
	}
	t.mu.Lock()
	t.sections[sec] = s
	t.mu.Unlock()
	return s.graphics, s.compute, nil
}

// Join implements framegraph.CommandTarget.
func (t *Target) Join(sec int) error {
	t.mu.Lock()
	s, ok := t.sections[sec]
	delete(t.sections, sec)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSection, sec)
	}

	g, err := s.graphics.finish()
	if err != nil {
		return err
	}
	c, err := s.compute.finish()
	if err != nil {
		if g != nil {
			t.device.FreeCommandBuffer(g)
		}
		return err
	}
	if !t.timing {
		_, err := t.submit(nonNil(g, c)...)
		return err
	}
	return t.timedJoin(sec, g, c)
}

// timedJoin submits the graphics stream and then the compute stream, and
// waits for each submission in turn. The target drives a single queue,
// which completes submissions in order, so the sample is sequential:
// Graphics runs from the join to the graphics completion, Compute from
// there to the compute completion, and SyncWait is the rest of the join.
func (t *Target) timedJoin(sec int, g, c hal.CommandBuffer) error {
	start := time.Now()
	gi, err := t.submit(nonNil(g)...)
	if err != nil {
		if c != nil {
			t.device.FreeCommandBuffer(c)
		}
		return err
	}
	ci, err := t.submit(nonNil(c)...)
	if err != nil {
		return err
	}
	if err := t.waitFor(gi); err != nil {
		return err
	}
	graphics := time.Since(start)
	if err := t.waitFor(ci); err != nil {
		return err
	}
	done := time.Since(start)
	t.retire()

	sample := framegraph.SectionSample{
		Graphics: graphics,
		Compute:  done - graphics,
		SyncWait: time.Since(start) - done,
	}
	t.mu.Lock()
	t.timings[sec] = sample
	t.mu.Unlock()
	return nil
}

// SectionTiming implements framegraph.SectionTimer. Samples exist only
// with WithSectionTiming, and each is reported once. Sections always run
// back to back on the one queue, so samples are never Parallel.
func (t *Target) SectionTiming(sec int) (framegraph.SectionSample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.timings[sec]
	delete(t.timings, sec)
	return s, ok
}

func nonNil(cbs ...hal.CommandBuffer) []hal.CommandBuffer {
	out := cbs[:0]
	for _, cb := range cbs {
		if cb != nil {
			out = append(out, cb)
		}
	}
	return out
}

// flush submits whatever s has recorded.
func (t *Target) flush(s *stream) error {
	cb, err := s.finish()
	if err != nil {
		return err
	}
	if cb == nil {
		return nil
	}
	_, err = t.submit(cb)
	return err
}

// submit queues command buffers and returns the submission index, or the
// last index when there is nothing to submit. The buffers are freed once
// the queue reports the submission completed.
func (t *Target) submit(cbs ...hal.CommandBuffer) (uint64, error) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if len(cbs) == 0 {
		return t.last, nil
	}
	if t.closed {
		for _, cb := range cbs {
			t.device.FreeCommandBuffer(cb)
		}
		return 0, ErrClosed
	}
	index, err := t.queue.Submit(cbs)
	if err != nil {
		for _, cb := range cbs {
			t.device.FreeCommandBuffer(cb)
		}
		framegraph.Logger().Warn("native: submit failed", "err", err)
		return 0, fmt.Errorf("native: submit: %w", err)
	}
	t.last = index
	t.inflight = append(t.inflight, submission{index: index, cbs: cbs})
	return index, nil
}

// waitFor polls the queue until submission index has completed.
func (t *Target) waitFor(index uint64) error {
	deadline := time.Now().Add(t.timeout)
	for t.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// retire frees the command buffers of completed submissions.
func (t *Target) retire() {
	done := t.queue.PollCompleted()
	t.subMu.Lock()
	defer t.subMu.Unlock()
	n := 0
	for _, sub := range t.inflight {
		if sub.index > done {
			t.inflight[n] = sub
			n++
			continue
		}
		for _, cb := range sub.cbs {
			t.device.FreeCommandBuffer(cb)
		}
	}
	clear(t.inflight[n:])
	t.inflight = t.inflight[:n]
}

// Submit submits the main stream's recorded work without waiting.
func (t *Target) Submit() error {
	return t.flush(t.stream)
}

// WaitIdle waits until every submitted command buffer has completed and
// frees them.
func (t *Target) WaitIdle() error {
	t.subMu.Lock()
	last := t.last
	t.subMu.Unlock()
	if err := t.waitFor(last); err != nil {
		return err
	}
	t.retire()
	return nil
}

// Close submits pending work, waits for the GPU and releases everything the
// target created. A device opened by Open is destroyed as well.
func (t *Target) Close() error {
	err := t.Submit()
	if werr := t.WaitIdle(); err == nil {
		err = werr
	}

	t.subMu.Lock()
	t.closed = true
	t.subMu.Unlock()

	t.mu.Lock()
	for _, bt := range t.createdTextures {
		t.device.DestroyTextureView(bt.view)
		t.device.DestroyTexture(bt.tex)
	}
	for _, b := range t.createdBuffers {
		t.device.DestroyBuffer(b)
	}
	t.createdTextures, t.createdBuffers = nil, nil
	t.mu.Unlock()

	if t.owned {
		t.device.Destroy()
		t.instance.Destroy()
	}
	return err
}
