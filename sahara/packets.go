package sahara

import (
	"encoding/binary"

	"github.com/moffa90/go-qdl/errkind"
)

// Packet is a decoded Sahara packet.
type Packet interface {
	Command() Command
}

// Hello is sent by the device to open the session.
type Hello struct {
	Version           uint32
	VersionCompatible uint32
	MaxPacketLength   uint32
	Mode              uint32
}

// HelloResponse answers Hello.
type HelloResponse struct {
	Version           uint32
	VersionCompatible uint32
	Status            uint32
	Mode              uint32
}

// ReadData requests Length bytes of the image at Offset.
type ReadData struct {
	ImageID uint32
	Offset  uint32
	Length  uint32
}

// ReadData64 is ReadData with 64-bit fields.
type ReadData64 struct {
	ImageID uint64
	Offset  uint64
	Length  uint64
}

// EndOfImageTx reports that the device has received the whole image.
type EndOfImageTx struct {
	ImageID uint32
	Status  uint32
}

// Done tells the device the transfer is complete.
type Done struct{}

// DoneResponse acknowledges Done.
type DoneResponse struct {
	ImageTransferStatus uint32
}

// Reset asks the device to reset.
type Reset struct{}

// ResetResponse acknowledges Reset.
type ResetResponse struct{}

// Unknown is any packet with a command this package does not handle.
type Unknown struct {
	Cmd    Command
	Length uint32
	Raw    []byte
}

func (Hello) Command() Command         { return CmdHello }
func (HelloResponse) Command() Command { return CmdHelloResponse }
func (ReadData) Command() Command      { return CmdReadData }
func (ReadData64) Command() Command    { return CmdReadData64 }
func (EndOfImageTx) Command() Command  { return CmdEndOfImageTx }
func (Done) Command() Command          { return CmdDone }
func (DoneResponse) Command() Command  { return CmdDoneResponse }
func (Reset) Command() Command         { return CmdReset }
func (ResetResponse) Command() Command { return CmdResetResponse }
func (u Unknown) Command() Command     { return u.Cmd }

// Parse decodes one packet. The buffer length must equal the length
// declared in the header.
func Parse(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return nil, errkind.New(errkind.Protocol, "parse", "packet too short: %d bytes", len(b))
	}

	cmd := Command(binary.LittleEndian.Uint32(b[0:4]))
	length := binary.LittleEndian.Uint32(b[4:8])
	if uint64(length) != uint64(len(b)) {
		return nil, &LengthMismatchError{Command: cmd, Declared: length, Got: len(b)}
	}

	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(b[off:]) }
	u64 := func(off int) uint64 { return binary.LittleEndian.Uint64(b[off:]) }

	need := map[Command]int{
		CmdHello:         helloMinSize,
		CmdHelloResponse: helloMinSize,
		CmdReadData:      ReadDataSize,
		CmdReadData64:    ReadData64Size,
		CmdEndOfImageTx:  EndOfImageTxSize,
		CmdDoneResponse:  DoneResponseSize,
	}
	if n, ok := need[cmd]; ok && len(b) < n {
		return nil, errkind.New(errkind.Protocol, "parse", "%s: %d bytes, need %d", cmd, len(b), n)
	}

	switch cmd {
	case CmdHello:
		return Hello{Version: u32(8), VersionCompatible: u32(12), MaxPacketLength: u32(16), Mode: u32(20)}, nil
	case CmdHelloResponse:
		return HelloResponse{Version: u32(8), VersionCompatible: u32(12), Status: u32(16), Mode: u32(20)}, nil
	case CmdReadData:
		return ReadData{ImageID: u32(8), Offset: u32(12), Length: u32(16)}, nil
	case CmdReadData64:
		return ReadData64{ImageID: u64(8), Offset: u64(16), Length: u64(24)}, nil
	case CmdEndOfImageTx:
		return EndOfImageTx{ImageID: u32(8), Status: u32(12)}, nil
	case CmdDone:
		return Done{}, nil
	case CmdDoneResponse:
		return DoneResponse{ImageTransferStatus: u32(8)}, nil
	case CmdReset:
		return Reset{}, nil
	case CmdResetResponse:
		return ResetResponse{}, nil
	default:
		return Unknown{Cmd: cmd, Length: length, Raw: append([]byte(nil), b...)}, nil
	}
}

func header(cmd Command, size int) []byte {
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:], uint32(cmd))
	binary.LittleEndian.PutUint32(b[4:], uint32(size))
	return b
}

func putU32(b []byte, off int, vs ...uint32) {
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[off+4*i:], v)
	}
}

// MarshalBinary encodes the packet with its reserved words zeroed.
func (p Hello) MarshalBinary() ([]byte, error) {
	b := header(CmdHello, HelloSize)
	putU32(b, 8, p.Version, p.VersionCompatible, p.MaxPacketLength, p.Mode)
	return b, nil
}

func (p HelloResponse) MarshalBinary() ([]byte, error) {
	b := header(CmdHelloResponse, HelloResponseSize)
	putU32(b, 8, p.Version, p.VersionCompatible, p.Status, p.Mode)
	return b, nil
}

func (p ReadData) MarshalBinary() ([]byte, error) {
	b := header(CmdReadData, ReadDataSize)
	putU32(b, 8, p.ImageID, p.Offset, p.Length)
	return b, nil
}

func (p ReadData64) MarshalBinary() ([]byte, error) {
	b := header(CmdReadData64, ReadData64Size)
	binary.LittleEndian.PutUint64(b[8:], p.ImageID)
	binary.LittleEndian.PutUint64(b[16:], p.Offset)
	binary.LittleEndian.PutUint64(b[24:], p.Length)
	return b, nil
}

func (p EndOfImageTx) MarshalBinary() ([]byte, error) {
	b := header(CmdEndOfImageTx, EndOfImageTxSize)
	putU32(b, 8, p.ImageID, p.Status)
	return b, nil
}

func (Done) MarshalBinary() ([]byte, error) { return header(CmdDone, DoneSize), nil }

func (p DoneResponse) MarshalBinary() ([]byte, error) {
	b := header(CmdDoneResponse, DoneResponseSize)
	putU32(b, 8, p.ImageTransferStatus)
	return b, nil
}

func (Reset) MarshalBinary() ([]byte, error) { return header(CmdReset, ResetSize), nil }

func (ResetResponse) MarshalBinary() ([]byte, error) {
	return header(CmdResetResponse, ResetResponseSize), nil
}

// Marshal encodes any known packet.
func Marshal(p Packet) ([]byte, error) {
	m, ok := p.(interface{ MarshalBinary() ([]byte, error) })
	if !ok {
		return nil, errkind.New(errkind.Protocol, "marshal", "cannot encode %s", p.Command())
	}
	return m.MarshalBinary()
}

// MarshalBinary returns the raw bytes the packet was parsed from.
func (u Unknown) MarshalBinary() ([]byte, error) {
	return append([]byte(nil), u.Raw...), nil
}
