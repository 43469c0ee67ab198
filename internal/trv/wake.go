package trv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"roomheat"
)

const wakeTimeout = 10 * time.Second

// HTTPWaker queries a valve's embedded web server directly, bypassing the
// broker. A reply proves the device is powered and on the network even when
// its MQTT session is dead.
type HTTPWaker struct {
	client *http.Client
}

func NewHTTPWaker() *HTTPWaker {
	return &HTTPWaker{client: &http.Client{Timeout: wakeTimeout}}
}

// Wake fetches /status from the device address and returns the parsed
// device state.
func (w *HTTPWaker) Wake(ctx context.Context, addr string) (*roomheat.DeviceStatus, error) {
	url := fmt.Sprintf("http://%s/status", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build wake request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wake %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wake %s: unexpected status %d", addr, resp.StatusCode)
	}

	var p statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode wake response from %s: %w", addr, err)
	}

	st := &roomheat.DeviceStatus{Calibrated: p.Calibrated, Address: addr}
	if p.Bat.Value > 0 {
		bat := p.Bat.Value
		st.BatteryLevel = &bat
	}
	if len(p.Thermostats) > 0 {
		target := p.Thermostats[0].TargetT.Value
		pos := int(p.Thermostats[0].Pos)
		st.TargetTemp = &target
		st.ValvePosition = &pos
	}
	return st, nil
}
