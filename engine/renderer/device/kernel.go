package device

// Invocation is what a CPU kernel receives for one compute dispatch.
type Invocation struct {
	Pipeline      Pipeline
	Bindings      *Bindings
	PushConstants []byte
	GroupCount    [3]uint32
}

// Kernel runs a compute pipeline on the host.
type Kernel func(inv Invocation) error

// KernelRegistry is implemented by devices that execute compute work on the CPU.
type KernelRegistry interface {
	RegisterKernel(pipelineName string, k Kernel)
}
