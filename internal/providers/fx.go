package providers

import (
	"github.com/smallbiznis/cashapp/internal/providers/email"
	"github.com/smallbiznis/cashapp/internal/providers/slack"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	slack.Module,
)
