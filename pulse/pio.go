// Copyright © 2021 Kent Gibson <warthog618@gmail.com>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

//go:build tinygo && rp2040
// +build tinygo,rp2040

package pulse

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// PIO program generating the HX711 clock on the side-set pin and shifting in
// DOUT on the in pin.  Runs at 1MHz, so clock pulses are 2us high and 2us
// low.
//
//	    pull block          side 0     ; pulse count - 1
//	    mov x, osr          side 0
//	    set pindirs, 0      side 0     ; DOUT is an input
//	    wait 1 pin 0        side 0     ; wait for a fresh conversion
//	    wait 0 pin 0        side 0 [7] ; DOUT low - data ready
//	    nop                 side 0 [7]
//	bitloop:
//	    nop                 side 1     ; rising edge, converter shifts out
//	    in pins, 1          side 1     ; sample while high
//	    jmp x-- bitloop     side 0 [1]
//	    push block          side 0
var hx711Program = []uint16{
	0x80a0, // 0: pull block side 0
	0xa027, // 1: mov x, osr side 0
	0xe080, // 2: set pindirs, 0 side 0
	0x20a0, // 3: wait 1 pin 0 side 0
	0x2720, // 4: wait 0 pin 0 side 0 [7]
	0xa742, // 5: nop side 0 [7]
	0xb042, // 6: nop side 1
	0x5001, // 7: in pins, 1 side 1
	0x0146, // 8: jmp x--, 6 side 0 [1]
	0x8020, // 9: push block side 0
}

// Loaded at offset 0 so jump addresses need no relocation.
const hx711Origin = 0

// PIO is a Sequencer backed by an RP2040 PIO state machine.
type PIO struct {
	sm     rp2pio.StateMachine
	clk    machine.Pin
	offset uint8
}

// NewPIO claims state machine smNum on PIO block pioNum (0 or 1) and loads
// the HX711 program, driving clk and sampling data.
func NewPIO(pioNum, smNum uint8, clk, data machine.Pin) (*PIO, error) {
	hw := rp2pio.PIO0
	if pioNum != 0 {
		hw = rp2pio.PIO1
	}
	s := &PIO{sm: hw.StateMachine(smNum), clk: clk}
	s.sm.TryClaim()
	offset, err := hw.AddProgram(hx711Program, hx711Origin)
	if err != nil {
		return nil, err
	}
	s.offset = offset
	clk.Configure(machine.PinConfig{Mode: hw.PinMode()})
	data.Configure(machine.PinConfig{Mode: hw.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSidesetParams(1, false, false)
	cfg.SetSidesetPins(clk)
	cfg.SetInPins(data)
	cfg.SetSetPins(data, 1)
	// shift left, so the first bit ends up as the MSB, no autopush
	cfg.SetInShift(false, false, 32)
	cfg.SetWrap(offset+uint8(len(hx711Program))-1, offset)
	// 125MHz / 125 => 1us per instruction
	cfg.SetClkDivIntFrac(125, 0)
	s.sm.Init(offset, cfg)

	s.sm.SetPindirsConsecutive(clk, 1, true)
	s.sm.SetPinsConsecutive(clk, 1, false)
	return s, nil
}

// Start enables the state machine and loads the pulse count.
func (s *PIO) Start(pulses int) error {
	s.sm.SetEnabled(true)
	s.sm.TxPut(uint32(pulses - 1))
	return nil
}

// Result returns the pushed word once the cycle is complete.
func (s *PIO) Result() (uint32, bool, error) {
	if s.sm.IsRxFIFOEmpty() {
		return 0, false, nil
	}
	return s.sm.RxGet(), true, nil
}

// Stop disables the state machine and returns it to the start of the
// program with the clock low.
func (s *PIO) Stop() error {
	s.sm.SetEnabled(false)
	s.sm.ClearFIFOs()
	s.sm.Restart()
	// jmp to the program start
	s.sm.Exec(uint16(s.offset))
	s.sm.SetPinsConsecutive(s.clk, 1, false)
	return nil
}

// SetClock drives the clock while the state machine is stopped.
func (s *PIO) SetClock(high bool) error {
	s.sm.SetPinsConsecutive(s.clk, 1, high)
	return nil
}

// Close stops the state machine.
func (s *PIO) Close() error {
	return s.Stop()
}
