package main

import (
	"flag"
	"fmt"
	"log"
	"math"

	"github.com/phil-mansfield/gofoam/geom"
	"github.com/phil-mansfield/gofoam/io"
	"github.com/phil-mansfield/gofoam/sched"
	"github.com/phil-mansfield/gofoam/sim"
)

func main() {
	var (
		config        string
		exampleConfig bool
	)

	flag.StringVar(
		&config, "Config", "",
		"Configuration file for the foam loop. Optional; defaults are "+
			"used for every unset field.",
	)
	flag.BoolVar(
		&exampleConfig, "ExampleConfig", false,
		"Prints an example configuration file to stdout.",
	)
	flag.Parse()

	if exampleConfig {
		fmt.Println(io.ExampleFoamFile)
		return
	}

	con := &io.DefaultFoamWrapper().Foam
	if config != "" {
		var err error
		con, err = io.ReadFoamConfig(config)
		if err != nil {
			log.Fatal(err.Error())
		}
	}

	cfg, err := con.SchedulerConfig()
	if err != nil {
		log.Fatal(err.Error())
	}

	stub := sim.NewStub(con.Particles, con.Seed)
	engine := &crowdingEngine{}

	s, err := sched.New(stub, engine, cfg)
	if err != nil {
		log.Fatal(err.Error())
	}
	defer s.Close()

	log.Printf(
		"Running foam loop: N = %d, frames = %d, cadence = %d.",
		con.Particles, con.Frames, cfg.Cadence,
	)

	for frame := 0; frame < con.Frames; frame++ {
		if err := s.Tick(); err != nil {
			log.Printf("Frame %d: %v", frame, err)
		}

		if (frame+1)%con.LogEvery == 0 {
			st := s.Stats()
			log.Printf(
				"Frame %6d: k = %2d, IQ = %.3f +/- %.3f, "+
					"t_geom = %v, results = %d",
				frame+1, st.Cadence, st.IQMean, st.IQStd,
				st.LastElapsed, st.ResultsSeen,
			)
		}
	}

	st := s.Stats()
	log.Printf(
		"Done: %d relaxation steps, %d measurements, final IQ %.3f +/- %.3f.",
		stub.Steps(), st.ResultsSeen, st.IQMean, st.IQStd,
	)
}

// crowdingEngine is a stand-in geometry engine for running the loop
// without an external power-diagram library. Each cell is treated as a
// sphere whose surface is roughened in proportion to how crowded its
// neighborhood is, so the controller sees a plausible spread of
// isoperimetric quotients.
type crowdingEngine struct{}

const (
	crowdingReach   = 2.5  // neighbor search radius, in units of r
	crowdingPerHit  = 0.04 // surface roughening per excess neighbor
	relaxedContacts = 6    // neighbor count with no roughening
	weightFloor     = 1e-10
)

func (e *crowdingEngine) Compute(points []geom.Vec, weights []float64) (*geom.Sample, error) {
	n := len(points)
	sm := geom.NewSample(n)

	for i := 0; i < n; i++ {
		if weights[i] < weightFloor {
			sm.Volume = append(sm.Volume, 0)
			sm.Area = append(sm.Area, 1e-12)
			sm.Contacts = append(sm.Contacts, 0)
			sm.Flags = append(sm.Flags, geom.FlagDegenerate)
			continue
		}

		r := math.Sqrt(weights[i])
		contacts := int32(0)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			var d2 float64
			for k := 0; k < 3; k++ {
				d := geom.PeriodicDist(points[i][k], points[j][k])
				d2 += d * d
			}
			reach := crowdingReach * r
			if d2 < reach*reach {
				contacts++
			}
		}

		rough := 1.0
		if excess := int(contacts) - relaxedContacts; excess > 0 {
			rough += crowdingPerHit * float64(excess)
		}

		sm.Volume = append(sm.Volume, 4*math.Pi/3*r*r*r)
		sm.Area = append(sm.Area, 4*math.Pi*r*r*rough)
		sm.Contacts = append(sm.Contacts, contacts)
		sm.Flags = append(sm.Flags, geom.FlagOK)
	}

	return sm, nil
}
