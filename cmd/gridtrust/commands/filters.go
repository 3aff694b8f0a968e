package commands

import (
	"github.com/arnaldoapp/gridtrust/internal/filter"
	"github.com/arnaldoapp/gridtrust/pkg/blackboard"
	"github.com/spf13/pflag"
)

// filterFlags binds the agreement filter shared by watch and report.
type filterFlags struct {
	fromTick uint64
	toTick   uint64
	producer string
	consumer string
	status   string
	selfish  bool
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.Uint64Var(&f.fromTick, "from-tick", 0, "Only agreements at or after this tick")
	fs.Uint64Var(&f.toTick, "to-tick", 0, "Only agreements at or before this tick")
	fs.StringVar(&f.producer, "producer", "", "Glob pattern for producer name (e.g. 'Solar*')")
	fs.StringVar(&f.consumer, "consumer", "", "Consumer id (e.g. 123:0:0)")
	fs.StringVar(&f.status, "status", "", "Success or Failed")
	fs.BoolVar(&f.selfish, "selfish", false, "Only agreements where the consumer was overruled")
}

// criteria returns the validated filter.
func (f *filterFlags) criteria() (filter.Criteria, error) {
	c := filter.Criteria{
		FromTick:     f.fromTick,
		ToTick:       f.toTick,
		ProducerGlob: f.producer,
		ConsumerID:   f.consumer,
		Status:       blackboard.DeliveryStatus(f.status),
		SelfishOnly:  f.selfish,
	}
	return c, c.Validate()
}
