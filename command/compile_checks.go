package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[InstallCompanyMessage]  = (*InstallCompanyCommand)(nil)
	_ gocmd.Commander[InstallLocationMessage] = (*InstallLocationCommand)(nil)
	_ gocmd.Commander[ContactCreateMessage]   = (*ContactCreateCommand)(nil)
	_ gocmd.Commander[RefreshSweepMessage]    = (*RefreshSweepCommand)(nil)
)
