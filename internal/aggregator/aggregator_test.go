package aggregator

import (
	"testing"

	"github.com/Qolorerr/Athena/internal/model"
)

func TestRegistryWithCredentials(t *testing.T) {
	r := NewRegistry(Config{MOEXLogin: "user", MOEXPassword: "secret"})
	if _, ok := r.Client(model.AggregatorMOEX); !ok {
		t.Error("moex adapter not registered")
	}
	if _, ok := r.Client(model.AggregatorMOEXAnalytic); !ok {
		t.Error("analytic adapter not registered despite credentials")
	}
}

func TestRegistryWithoutCredentials(t *testing.T) {
	r := NewRegistry(Config{})
	if _, ok := r.Client(model.AggregatorMOEX); !ok {
		t.Error("moex adapter not registered")
	}
	if _, ok := r.Client(model.AggregatorMOEXAnalytic); ok {
		t.Error("analytic adapter registered without credentials")
	}
}
