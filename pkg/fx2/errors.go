package fx2

import "fmt"

// VerifyError reports the first byte whose read-back differs from the image.
type VerifyError struct {
	Addr uint16
	Want byte
	Got  byte
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("fx2: verify failed at 0x%04X: wrote 0x%02X, read 0x%02X", e.Addr, e.Want, e.Got)
}
