package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reminderDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reminder_dispatch_total",
	Help: "Appointment reminders handled by the dispatcher, by result.",
}, []string{"result"})
