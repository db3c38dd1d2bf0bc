package captcha

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// challengesGenerated counts challenges created by a generator.
	challengesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "formcaptcha",
		Subsystem: "challenge",
		Name:      "generated_total",
		Help:      "Challenges created by a generator",
	})

	// challengesLoaded counts challenges restored from session storage.
	challengesLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "formcaptcha",
		Subsystem: "challenge",
		Name:      "loaded_total",
		Help:      "Challenges restored from session storage",
	})

	// verifications counts verification outcomes.
	// Labels: result (solved, sticky, wrong, missing)
	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "formcaptcha",
		Subsystem: "challenge",
		Name:      "verifications_total",
		Help:      "Challenge verifications by result",
	}, []string{"result"})

	challengesCleared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "formcaptcha",
		Subsystem: "challenge",
		Name:      "cleared_total",
		Help:      "Challenges deleted after form acceptance",
	})
)
