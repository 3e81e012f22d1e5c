/*
DESCRIPTION
  metrics.go provides prometheus counters for frames passing through the IC
  capture source.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package iccapture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "iccapture"

var (
	framesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_received_total",
		Help:      "Frames delivered by the frame grabber.",
	})
	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_dropped_total",
		Help:      "Frames discarded because the source was not recording.",
	})
	framesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_rejected_total",
		Help:      "Frames that were empty or could not be added to the buffer.",
	})
	framesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_added_total",
		Help:      "Frames added to the video source buffer.",
	})
	recordingGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "recording",
		Help:      "1 if the source is recording, 0 otherwise.",
	})
)
