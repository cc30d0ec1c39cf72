// Copyright 2026 The skillrouter Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package deploy

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Alert types.
const (
	AlertErrorRate     = "error_rate"
	AlertCostIncrease  = "cost_increase"
	AlertExecutionTime = "execution_time"
)

// Alert is one monitoring threshold violation.
type Alert struct {
	ID        string         `json:"id"`
	Severity  string         `json:"severity"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AlertChannel delivers alerts to an external sink. Implementations must
// be safe for concurrent use; delivery errors are logged, never fatal.
type AlertChannel interface {
	Notify(alert Alert) error
}

// LogChannel writes alerts to the structured log. It is the default
// channel on every deployment.
type LogChannel struct{}

// Notify logs the alert at a level matching its severity.
func (LogChannel) Notify(alert Alert) error {
	entry := log.WithFields(log.Fields{
		"alert_id": alert.ID,
		"type":     alert.Type,
	})
	if alert.Severity == SeverityCritical {
		entry.Errorf("ALERT: %s", alert.Message)
	} else {
		entry.Warnf("ALERT: %s", alert.Message)
	}
	return nil
}

// emit records the alert in the ring buffer, counts it, and fans it out to
// every registered channel. Caller holds the deployment mutex.
func (d *Deployment) emit(alert Alert) {
	alert.ID = uuid.NewString()
	alert.Timestamp = d.now()

	d.alerts = append(d.alerts, alert)
	if len(d.alerts) > d.alertCfg.MaxAlerts {
		d.alerts = d.alerts[len(d.alerts)-d.alertCfg.MaxAlerts:]
	}
	d.m.RecordAlert(alert.Severity)

	for _, ch := range d.channels {
		if err := ch.Notify(alert); err != nil {
			log.Warnf("Alert channel delivery failed: %v", err)
		}
	}
}

// Alerts returns the most recent n alerts, newest last. n <= 0 returns all
// retained alerts.
func (d *Deployment) Alerts(n int) []Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n <= 0 || n > len(d.alerts) {
		n = len(d.alerts)
	}
	out := make([]Alert, n)
	copy(out, d.alerts[len(d.alerts)-n:])
	return out
}

// RegisterChannel adds an alert delivery channel.
func (d *Deployment) RegisterChannel(ch AlertChannel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, ch)
}
