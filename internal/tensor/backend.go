package tensor

// DeviceType tags the kind of backend behind a Device.
type DeviceType int

// Supported device types.
const (
	Naive DeviceType = iota
	CPU
	WebGPU
)

// String returns a human-readable device type name.
func (t DeviceType) String() string {
	switch t {
	case Naive:
		return "Naive"
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// Buffer is backend-owned storage holding Len float32 values.
// Only the backend that allocated a buffer may interpret it.
type Buffer interface {
	Len() int
}

// Backend is the kernel catalogue a Device dispatches to.
//
// Backends never validate: the Device checks shapes, sizes and ownership
// before any call, so every argument a backend receives is consistent.
// Every method completes (including device synchronization) before it
// returns.
//
// Implementations:
//   - naive: serial loops over host memory
//   - cpu: chunked goroutines and gonum BLAS over host memory
//   - webgpu: storage in GPU buffers with staging transfers
type Backend interface {
	Name() string
	Type() DeviceType

	// Memory management
	Allocate(size int) (Buffer, error)
	Free(buf Buffer)
	Upload(dst Buffer, src []float32)   // host -> device
	Download(dst []float32, src Buffer) // device -> host
	Fill(dst Buffer, value float32)
	Copy(dst, src Buffer)

	// Elementwise kernels
	Unary(op UnaryOp, k float32, y, x Buffer)
	UnaryBackward(op UnaryOp, k float32, gx, x, y, gy Buffer) // gx += f'(x) * gy
	Binary(op BinaryOp, y, a, b Buffer, p *BroadcastPlan)
	BinaryBackward(op BinaryOp, ga, gb, a, b, y, gy Buffer, p *BroadcastPlan) // ga, gb may be nil
	Axpy(alpha float32, x, y Buffer)                                         // y += alpha * x

	// Layout kernels
	Blocks(dst, src Buffer, p BlockCopy)
	Reduce(op ReduceOp, y, x Buffer, p Reduction)
	Transpose(y, x Buffer, rows, cols, batch int, accumulate bool)
	MatMul(c, a, b Buffer, p Gemm)

	// Synchronize blocks until all queued work is complete.
	Synchronize()

	// Close releases backend-wide resources; no buffer is used afterwards.
	Close() error
}

// UnaryOp selects an elementwise unary kernel. Ops marked (k) read the
// constant argument; the others ignore it.
type UnaryOp int

// Unary kernels.
const (
	OpNegate         UnaryOp = iota // -x
	OpSqrt                          // sqrt(x)
	OpExp                           // exp(x)
	OpLog                           // ln(x)
	OpTanh                          // tanh(x)
	OpSigmoid                       // 1/(1+exp(-x))
	OpSoftplus                      // ln(1+exp(x))
	OpSin                           // sin(x)
	OpCos                           // cos(x)
	OpTan                           // tan(x)
	OpReLU                          // max(x, 0)
	OpLReLU                         // x>0 ? x : 0.01x
	OpPReLU                         // (k) x>0 ? x : kx
	OpELU                           // (k) x>0 ? x : k(exp(x)-1)
	OpAddConst                      // (k) x+k
	OpSubtractConstL                // (k) k-x
	OpSubtractConstR                // (k) x-k
	OpMultiplyConst                 // (k) kx
	OpDivideConstL                  // (k) k/x
	OpDivideConstR                  // (k) x/k
	numUnaryOps
)

var unaryOpNames = [numUnaryOps]string{
	"Negative", "Sqrt", "Exp", "Log", "Tanh", "Sigmoid", "Softplus", "Sin", "Cos", "Tan",
	"ReLU", "LReLU", "PReLU", "ELU", "AddConst", "SubtractConstL", "SubtractConstR",
	"MultiplyConst", "DivideConstL", "DivideConstR",
}

// String returns the kernel name.
func (op UnaryOp) String() string {
	if op < 0 || op >= numUnaryOps {
		return "UnaryOp(?)"
	}
	return unaryOpNames[op]
}

// BinaryOp selects an elementwise binary kernel.
type BinaryOp int

// Binary kernels.
const (
	OpAdd BinaryOp = iota
	OpSubtract
	OpMultiply
	OpDivide
)

// String returns the kernel name.
func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "Add"
	case OpSubtract:
		return "Subtract"
	case OpMultiply:
		return "Multiply"
	case OpDivide:
		return "Divide"
	default:
		return "BinaryOp(?)"
	}
}

// ReduceOp selects a reduction kernel.
type ReduceOp int

// Reduction kernels.
const (
	ReduceSum ReduceOp = iota
	ReduceLogSumExp
)

// BroadcastPlan describes an elementwise binary kernel over broadcast
// operands. Dims lists the result axes (significant dims, then the batch as
// the last axis); AStrides and BStrides give each operand's element stride
// along those axes, 0 where the operand is broadcast.
type BroadcastPlan struct {
	Dims     []int
	AStrides []int
	BStrides []int
}

// Size returns the number of result elements.
func (p *BroadcastPlan) Size() int {
	n := 1
	for _, d := range p.Dims {
		n *= d
	}
	return n
}

// Dense reports whether both operands are laid out exactly like the result.
func (p *BroadcastPlan) Dense() bool {
	stride := 1
	for i, d := range p.Dims {
		if d > 1 && (p.AStrides[i] != stride || p.BStrides[i] != stride) {
			return false
		}
		stride *= d
	}
	return true
}

// BlockCopy describes Count strided blocks of Len contiguous elements:
//
//	dst[DstOffset + c*DstStride + i] (+)= src[SrcOffset + c*SrcStride + i]
type BlockCopy struct {
	DstOffset, DstStride int
	SrcOffset, SrcStride int
	Len, Count           int
	Accumulate           bool
}

// Reduction views x as [Repeat][N][Base] (Base fastest) and y as
// [Repeat][Base]; the kernel reduces over N.
type Reduction struct {
	Base, N, Repeat int
}

// Gemm describes a batched column-major matrix product
//
//	C (M×N) (+)= op(A) (M×K) · op(B) (K×N)
//
// where op transposes the stored operand when the matching flag is set.
// A batch of 1 is reused for every item of the loop over
// max(BatchA, BatchB, BatchC); with Accumulate, items mapping to the same
// C slot are summed.
type Gemm struct {
	M, K, N                int
	BatchA, BatchB, BatchC int
	TransA, TransB         bool
	Accumulate             bool
}

// Batches returns the number of loop iterations.
func (g Gemm) Batches() int {
	return max(g.BatchA, g.BatchB, g.BatchC)
}
