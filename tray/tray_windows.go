//go:build windows

package tray

import (
	"runtime"

	"fyne.io/systray"
)

var (
	mRecord   *systray.MenuItem
	mPanel    *systray.MenuItem
	mSettings *systray.MenuItem
	mQuit     *systray.MenuItem
)

// Init shows the status-bar microphone item. The systray message loop
// needs its own OS thread.
func Init() <-chan struct{} {
	ready := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		systray.Run(func() {
			onReady()
			close(ready)
		}, onExit)
	}()
	<-ready
	return quitCh
}

func onReady() {
	systray.SetIcon(iconIdle)
	systray.SetTitle("Voice AI")
	systray.SetTooltip(idleTooltip)

	mRecord = systray.AddMenuItem("Start Recording", "Start or stop system recording")
	mPanel = systray.AddMenuItem("Open Panel", "Open the Voice AI panel")
	mSettings = systray.AddMenuItem("Settings", "Edit Voice AI settings")
	systray.AddSeparator()
	mQuit = systray.AddMenuItem("Quit", "Quit Voice AI")

	go func() {
		for {
			select {
			case <-mRecord.ClickedCh:
				toggleRecording()
			case <-mPanel.ClickedCh:
				call(&panelFn)
			case <-mSettings.ClickedCh:
				call(&settingsFn)
			case <-mQuit.ClickedCh:
				Quit()
			case <-quitCh:
				return
			}
		}
	}()
}

func updateMenu(s Status) {
	if mRecord == nil {
		return
	}
	if s == Recording || s == Stopping {
		systray.SetIcon(iconRec)
	} else {
		systray.SetIcon(iconIdle)
	}
	title, ok := s.label()
	mRecord.SetTitle(title)
	if ok {
		mRecord.Enable()
	} else {
		mRecord.Disable()
	}
}

func updateTooltip(msg string) {
	if mRecord != nil {
		systray.SetTooltip(msg)
	}
}

func shutdown() {
	systray.Quit()
}

func onExit() {
	closeOnce.Do(func() { close(quitCh) })
}
