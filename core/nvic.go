package core

const (
	nvicISER = 0xE000E100
	nvicICER = 0xE000E180
	nvicICPR = 0xE000E280
	nvicIPR  = 0xE000E400
)

// IRQ is a device interrupt number as seen by the NVIC.
type IRQ uint8

// STM32F40x device interrupts used by the HAL.
const (
	IRQ_EXTI0     IRQ = 6
	IRQ_EXTI1     IRQ = 7
	IRQ_EXTI2     IRQ = 8
	IRQ_EXTI3     IRQ = 9
	IRQ_EXTI4     IRQ = 10
	IRQ_EXTI9_5   IRQ = 23
	IRQ_I2C1_EV   IRQ = 31
	IRQ_I2C1_ER   IRQ = 32
	IRQ_SPI1      IRQ = 35
	IRQ_SPI2      IRQ = 36
	IRQ_USART1    IRQ = 37
	IRQ_USART2    IRQ = 38
	IRQ_USART3    IRQ = 39
	IRQ_EXTI15_10 IRQ = 40
	IRQ_USART6    IRQ = 71

	IRQ_max = 81
)

// EnableIRQ unmasks irq in the NVIC.
func EnableIRQ(irq IRQ) {
	reg(nvicISER + uintptr(irq/32)*4).Set(1 << (irq % 32))
}

// DisableIRQ masks irq in the NVIC.
func DisableIRQ(irq IRQ) {
	reg(nvicICER + uintptr(irq/32)*4).Set(1 << (irq % 32))
}

// IRQEnabled reports whether irq is unmasked in the NVIC.
func IRQEnabled(irq IRQ) bool {
	return reg(nvicISER + uintptr(irq/32)*4).HasBits(1 << (irq % 32))
}

// ClearPendingIRQ drops a pending request for irq.
func ClearPendingIRQ(irq IRQ) {
	reg(nvicICPR + uintptr(irq/32)*4).Set(1 << (irq % 32))
}

// SetIRQPriority sets the preemption priority of irq. Only the top four
// bits of the priority byte are implemented.
func SetIRQPriority(irq IRQ, p IrqPriority) error {
	if p > PriorityLowest || irq > IRQ_max {
		return ErrInvalidArg
	}
	r := reg(nvicIPR + uintptr(irq/4)*4)
	r.ReplaceBits(uint32(p)<<4, 0xFF, uint8(irq%4)*8)
	return nil
}

// IRQPriority returns the preemption priority programmed for irq.
func IRQPriority(irq IRQ) IrqPriority {
	r := reg(nvicIPR + uintptr(irq/4)*4)
	return IrqPriority((r.Get() >> (uint8(irq%4)*8 + 4)) & 0xF)
}

// DispatchIRQ runs the HAL handler for irq. Targets route every vector
// returned by HandledIRQs here.
func DispatchIRQ(irq IRQ) {
	switch irq {
	case IRQ_EXTI0, IRQ_EXTI1, IRQ_EXTI2, IRQ_EXTI3, IRQ_EXTI4:
		extiHandleLines(uint8(irq-IRQ_EXTI0), uint8(irq-IRQ_EXTI0))
	case IRQ_EXTI9_5:
		extiHandleLines(5, 9)
	case IRQ_EXTI15_10:
		extiHandleLines(10, 15)
	default:
		if u := uartForIRQ(irq); u != nil {
			u.handleIRQ()
		}
	}
}

var handledIRQs = [...]IRQ{
	IRQ_EXTI0, IRQ_EXTI1, IRQ_EXTI2, IRQ_EXTI3, IRQ_EXTI4,
	IRQ_EXTI9_5, IRQ_EXTI15_10,
	IRQ_USART1, IRQ_USART2, IRQ_USART3, IRQ_USART6,
}

// HandledIRQs lists the device interrupts DispatchIRQ services.
func HandledIRQs() []IRQ {
	return handledIRQs[:]
}
