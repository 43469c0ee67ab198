package service

import (
	"context"

	"roomheat"
	"roomheat/internal/logger"
)

// TRVFeed is the entry point for actuator telemetry arriving from the
// transport layer. It keeps the tracker current and routes guest-origin
// setpoint changes to the heating controller.
type TRVFeed struct {
	tracker *TRVTracker
	heating *HeatingService
	log     *logger.Logger
}

func NewTRVFeed(tracker *TRVTracker, heating *HeatingService, log *logger.Logger) *TRVFeed {
	return &TRVFeed{tracker: tracker, heating: heating, log: log}
}

// HandleTargetReport ingests a reported target temperature. Attribution runs
// before the report is recorded; recording first would make every guest
// change look like the automation's own.
func (f *TRVFeed) HandleTargetReport(ctx context.Context, id roomheat.ActuatorID, target float64) {
	h := f.tracker.Get(id)
	origin := h.ClassifyTarget(target)
	h.UpdateFromStatus(target)

	f.log.Debugw("target report", "actuator", id, "target", target, "origin", origin)
	if origin == roomheat.OriginGuest {
		f.heating.OnGuestAdjustment(ctx, id, target)
	}
}

// HandleDeviceStatus ingests a full device status/info payload. A target
// temperature inside it goes through the same attribution path as a bare
// target report.
func (f *TRVFeed) HandleDeviceStatus(ctx context.Context, id roomheat.ActuatorID, st roomheat.DeviceStatus) {
	if st.TargetTemp != nil {
		target := *st.TargetTemp
		st.TargetTemp = nil
		f.HandleTargetReport(ctx, id, target)
	}
	f.tracker.Get(id).ApplyDeviceStatus(st)
}
