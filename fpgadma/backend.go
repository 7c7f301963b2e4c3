package fpgadma

// Backend is the privileged request/response channel to the kernel driver.
// All calls are synchronous.  Implementations need not be concurrent safe;
// Session serializes every call.
type Backend interface {
	// SetRegister writes r.Value at r.Address of r.Bar
	SetRegister(r RegisterRequest) error

	// GetRegister reads r.Address of r.Bar into r.Value
	GetRegister(r *RegisterRequest) error

	// Limits returns the DMA maxima of the board
	Limits() (Limits, error)

	// MemoryMap returns the channel × descriptor buffer table
	MemoryMap() (*MemoryMap, error)

	// SetNotificationHandles registers the flat eventfd array, laid out
	// with Limits.SlotIndex
	SetNotificationHandles(h []int32) error

	// NotificationHandles returns the registered eventfds as a table
	NotificationHandles() (*HandleTable, error)

	// Status returns the DMA status word
	Status() (uint32, error)

	// Close releases the device
	Close() error
}
