package cache

import "context"

func contextBG() context.Context { return context.Background() }
