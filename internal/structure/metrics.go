package structure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"voxstruct.ai/internal/protocol"
)

const (
	opLabel   = "op"
	codeLabel = "code"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voxstruct_structure_requests",
		Help: "Client operations handled by the structure loop.",
	}, []string{
		opLabel,
		codeLabel,
	})

	clientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voxstruct_structure_clients",
		Help: "Connected sessions.",
	})

	meshesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxstruct_structure_chunk_meshes_sent",
		Help: "CHUNK_MESH messages queued to sessions.",
	})

	meshBackpressure = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voxstruct_structure_chunk_mesh_backpressure",
		Help: "Times a session queue was full and meshes were deferred.",
	})
)

func instrumentRequest(op string, ack protocol.AckMsg) {
	code := ack.Code
	if ack.Accepted {
		code = "OK"
	}
	requestsTotal.With(prometheus.Labels{opLabel: op, codeLabel: code}).Inc()
}
