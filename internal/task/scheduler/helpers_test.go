package scheduler

import logx "taskbeat/pkg/logx"

func nopLog() logx.Logger { return logx.Nop() }
