//go:build !mediadevices

package commands

import "github.com/mmutlucod/realtime-call-app/internal/adapters/rtc"

// Without capture support the client sends generated silence and filler
// video, which is enough to exercise a call end to end.
func newDevice() (rtc.Device, error) {
	return rtc.NewSyntheticDevice(), nil
}
