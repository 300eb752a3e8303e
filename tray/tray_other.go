//go:build !windows

package tray

// Init is a no-op without a Windows notification area.
func Init() <-chan struct{} { return quitCh }

func updateMenu(Status)    {}
func updateTooltip(string) {}
func shutdown()            {}
