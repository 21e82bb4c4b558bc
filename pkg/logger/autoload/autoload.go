// Package autoload initializes the global logger from the environment when
// blank-imported.
package autoload

import (
	configx "github.com/mRafaelSilva/Projeto-ASM/pkg/config"
	logx "github.com/mRafaelSilva/Projeto-ASM/pkg/logger"
)

func init() {
	logx.Init(*configx.MustNew[logx.Config]("LOG"))
}
