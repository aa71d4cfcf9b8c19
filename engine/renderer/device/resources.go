package device

// Buffer is a device allocation. Map is only valid on host visible memory.
type Buffer interface {
	Size() uint64
	Usage() BufferUsage
	Map() ([]byte, error)
	// Flush makes host writes of the current mapping visible to the device.
	Flush() error
	Unmap()
	Destroy()
}

// Image is a sampled 2D RGBA8 texture.
type Image interface {
	Name() string
	Width() uint32
	Height() uint32
	Destroy()
}

// BindingDesc declares one shader resource of a pipeline layout.
type BindingDesc struct {
	Name    string
	Binding uint32
	Type    DescriptorType
	// Array size. 0 declares a runtime sized (bindless) array.
	Count  uint32
	Stages ShaderStage
	// Writable marks storage buffers the shader writes to.
	Writable bool
}

type Pipeline interface {
	Name() string
	BindPoint() BindPoint
	Layout() []BindingDesc
	PushConstantSize() uint32
	Destroy()
}

type ComputePipelineConfig struct {
	Name string
	// Path to the SPIR-V module.
	ShaderPath       string
	Bindings         []BindingDesc
	PushConstantSize uint32
}

type GraphicsPipelineConfig struct {
	Name               string
	VertexShaderPath   string
	FragmentShaderPath string
	// Stride of one vertex, 0 for pipelines without vertex input.
	VertexStride     uint32
	Bindings         []BindingDesc
	PushConstantSize uint32
}

// ValidateLayout rejects a layout that registers a name or binding slot twice.
func ValidateLayout(layout []BindingDesc) error {
	names := make(map[string]struct{}, len(layout))
	slots := make(map[uint32]struct{}, len(layout))
	for _, b := range layout {
		if _, ok := names[b.Name]; ok {
			return duplicateBinding(b.Name)
		}
		if _, ok := slots[b.Binding]; ok {
			return duplicateBinding(b.Name)
		}
		names[b.Name] = struct{}{}
		slots[b.Binding] = struct{}{}
	}
	return nil
}
