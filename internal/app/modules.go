package app

import (
	"github.com/vk/cmipconv/internal/registry"
	"github.com/vk/cmipconv/modules/arith"
	"github.com/vk/cmipconv/modules/fx"
	"github.com/vk/cmipconv/modules/land"
	"github.com/vk/cmipconv/modules/mpas"
)

// coreModules is the definitive list of all transform modules that are
// compiled into the cmipconv binary.
var coreModules = []registry.Module{
	&arith.Module{},
	&land.Module{},
	&fx.Module{},
	&mpas.Module{},
}
