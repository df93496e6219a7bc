//go:build mediadevices

package commands

import "github.com/mmutlucod/realtime-call-app/internal/adapters/rtc"

func newDevice() (rtc.Device, error) {
	dev, err := rtc.NewCaptureDevice()
	if err != nil {
		return nil, err
	}
	return dev, nil
}
