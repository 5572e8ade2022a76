package controlplane

import "context"

func contextBG() context.Context { return context.Background() }
