package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var observersConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "classroom_observers_connected",
	Help: "The number of websocket observers connected to the classroom server",
}, []string{"entity", "format"})

var framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroom_frames_delivered_total",
	Help: "The total number of list frames delivered to websocket observers",
}, []string{"entity", "format"})

var bytesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classroom_bytes_delivered_total",
	Help: "The total number of bytes delivered to websocket observers",
}, []string{"entity", "format"})
