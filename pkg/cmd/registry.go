package cmd

import (
	"log/slog"

	"github.com/flowmail/journey/pkg/email"
	"github.com/flowmail/journey/pkg/persistence"
	"github.com/flowmail/journey/pkg/registry"
	"github.com/flowmail/journey/pkg/steps/condition"
	"github.com/flowmail/journey/pkg/steps/delay"
	"github.com/flowmail/journey/pkg/steps/exit"
	"github.com/flowmail/journey/pkg/steps/sendemail"
	"github.com/flowmail/journey/pkg/steps/trigger"
	"github.com/flowmail/journey/pkg/steps/updatecontact"
	"github.com/flowmail/journey/pkg/steps/waitevent"
	"github.com/flowmail/journey/pkg/steps/webhook"
)

// NewRegistry builds the step handler registry with every native step type
// registered.
func NewRegistry(logger *slog.Logger, persistence persistence.Persistence, delivery email.Delivery) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(trigger.NewHandler())
	reg.Register(condition.NewHandler())
	reg.Register(sendemail.NewHandler(delivery))
	reg.Register(delay.NewHandler())
	reg.Register(waitevent.NewHandler())
	reg.Register(webhook.NewHandler(nil))
	reg.Register(updatecontact.NewHandler(persistence.ContactRepository()))
	reg.Register(exit.NewHandler())

	return reg
}
