package logger

import "go.uber.org/zap"

var Inst *zap.SugaredLogger

func init() {
	var err error
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Inst = l.Sugar()
}

// SetDevelopment swaps Inst for a debug-level, human readable logger.
func SetDevelopment() error {
	l, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	Inst = l.Sugar()
	return nil
}

func Sync() {
	_ = Inst.Sync()
}
