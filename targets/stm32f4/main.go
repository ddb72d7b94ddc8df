//go:build tinygo && stm32f4

// Command stm32f4 is the firmware image for STM32F407 boards. Build with
//
//	tinygo flash -target=targets/stm32f4/firmkit-f407.json ./targets/stm32f4
//
// The TinyGo runtime performs the data and bss setup before main runs; main
// wires the device interrupts into the HAL and hands over to the
// application loop. HardFault_Handler belongs to the TinyGo runtime, so
// only MemManage, BusFault and UsageFault reach the application handlers.
package main

import (
	"device/stm32"
	"runtime/interrupt"

	"firmkit/app"
	"firmkit/core"
	"firmkit/startup"
)

var vectors *startup.VectorTable

func main() {
	overrides := app.FaultVectors()
	overrides[startup.VectorSysTick] = core.SysTickHandler
	for _, irq := range core.HandledIRQs() {
		irq := irq
		overrides[startup.IRQ(int(irq))] = func() { core.DispatchIRQ(irq) }
	}
	vt, err := startup.NewVectorTable(startup.LinkerSymbols().StackTop, nil, overrides)
	if err != nil {
		halt()
	}
	vectors = vt
	registerInterrupts()

	a := app.New(nil)
	if err := a.Run(); err != nil {
		blinkError(a)
	}
}

// blinkError flashes the LED at 5 Hz when setup failed after the LED came
// up, and spins otherwise.
func blinkError(a *app.App) {
	if a.LED == nil {
		halt()
	}
	for {
		a.LED.Toggle()
		core.DelayMs(100)
	}
}

// registerInterrupts routes every device interrupt the HAL services through
// the vector table. interrupt.New needs constant IRQ numbers.
func registerInterrupts() {
	interrupt.New(stm32.IRQ_EXTI0, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_EXTI0)) })
	interrupt.New(stm32.IRQ_EXTI1, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_EXTI1)) })
	interrupt.New(stm32.IRQ_EXTI2, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_EXTI2)) })
	interrupt.New(stm32.IRQ_EXTI3, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_EXTI3)) })
	interrupt.New(stm32.IRQ_EXTI4, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_EXTI4)) })
	interrupt.New(stm32.IRQ_EXTI9_5, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_EXTI9_5)) })
	interrupt.New(stm32.IRQ_EXTI15_10, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_EXTI15_10)) })
	interrupt.New(stm32.IRQ_USART1, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_USART1)) })
	interrupt.New(stm32.IRQ_USART2, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_USART2)) })
	interrupt.New(stm32.IRQ_USART3, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_USART3)) })
	interrupt.New(stm32.IRQ_USART6, func(interrupt.Interrupt) { vectors.Dispatch(startup.IRQ(stm32.IRQ_USART6)) })
}

//export SysTick_Handler
func sysTickHandler() {
	vectors.Dispatch(startup.VectorSysTick)
}

//export MemoryManagement_Handler
func memManageHandler() {
	vectors.Dispatch(startup.VectorMemManage)
}

//export BusFault_Handler
func busFaultHandler() {
	vectors.Dispatch(startup.VectorBusFault)
}

//export UsageFault_Handler
func usageFaultHandler() {
	vectors.Dispatch(startup.VectorUsageFault)
}

func halt() {
	startup.DefaultHandler()
}
