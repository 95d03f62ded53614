package models

// Broadcast message types pushed to live subscribers. The wire envelope
// carries the type twice: once lowercase in "type" and once uppercased in
// "event" for clients that switch on either.
const (
	WSNewEvent          = "new_event"
	WSNewIncident       = "new_incident"
	WSCriticalAlert     = "critical_alert"
	WSIncidentResolved  = "incident_resolved"
	WSIncidentUpdated   = "incident_updated"
	WSDeviceQuarantined = "device_quarantined"
)
