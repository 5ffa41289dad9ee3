package module

import "time"

func nowMS() float64 { return float64(time.Now().UnixMilli()) }

// tick awaitContext 的轮询间隔
func tick() <-chan time.Time { return time.After(20 * time.Millisecond) }
