/*Package fpgadma configures and drives the DMA engine of a PCIe attached FPGA.

The kernel driver exposes a character device which accepts a handful of
ioctls: register reads and writes, the DMA limits of the board, the
channel × descriptor buffer map, and the table of eventfds the driver
signals when a descriptor completes.  Everything in this package funnels
through a Session, which owns the open device and a mutex.  Every exported
method of Session holds that mutex for its whole duration, so compound
operations (the notification handshake, the descriptor table programming)
are atomic with respect to each other.

Basic usage is as followed:
 s, err := fpgadma.Open("/dev/my_driver")
 if err != nil {
 	log.Fatal(err)
 }
 defer s.Close()
 topo, err := s.Discover() // limits, eventfds and buffer map
 if err != nil {
 	log.Fatal(err)
 }
 defer topo.Notifications.Close()

 layout := fpgadma.GlobalStartConfig{
 	ChannelCount: 1,
 	Channels: []fpgadma.ChannelStartConfig{{
 		DescriptorCount: 2,
 		Descriptors: []fpgadma.DescriptorStartConfig{
 			{BufferSize: 0x2000, InterruptEnable: 1},
 			{BufferSize: 0x2000, InterruptEnable: 1},
 		},
 	}},
 }
 err = s.Run(layout, topo.Map, true) // rx
 n, err := topo.Notifications.Wait(ctx, 0, 1) // channel 0 descriptor 1 done

Errors are never retried inside the package.  A failed multi-register
sequence leaves the board partially programmed; call StopAll and start over.

Programming workflow, as performed by Configure:
1.	Read the interrupt status register, then write 0xFF to the interrupt
	data register to clear every pending interrupt.
2.	For each channel with a non zero descriptor count, in ascending order,
	stop the channel (control = 0) and write the descriptor count.
3.	For each descriptor of the channel, in ascending order, write the
	buffer physical address (low word then high word), the buffer size with
	bit 31 set, and the interrupt enable flag.
4.	Write 0 to the PPS trigger register.
*/
package fpgadma
