package dispatch

import (
	"hexagondb/internal/resp"
)

func init() {
	register("PING", 1, 2, false, true, cmdPing)
	register("ECHO", 2, 2, false, false, cmdEcho)
	register("INFO", 1, 2, false, false, cmdInfo)
	register("SAVE", 1, 1, false, false, cmdSave)
	register("BGSAVE", 1, 1, false, false, cmdBGSave)
	register("AUTH", 2, 2, false, true, cmdAuth)
	register("HELLO", 1, 2, false, true, cmdHello)
	register("QUIT", 1, 1, false, true, cmdQuit)
}

func cmdPing(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if len(args) == 2 {
		return resp.BulkString(args[1]), false, nil
	}
	return resp.SimpleString("PONG"), false, nil
}

func cmdEcho(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return resp.BulkString(args[1]), false, nil
}

func cmdInfo(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if d.Info == nil {
		return resp.BulkString(""), false, nil
	}
	return resp.BulkString(d.Info()), false, nil
}

func cmdSave(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if d.Save == nil {
		return resp.Error("ERR persistence is not configured"), false, nil
	}
	if err := d.Save(); err != nil {
		return resp.Error("ERR " + err.Error()), false, nil
	}
	return resp.OK(), false, nil
}

func cmdBGSave(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if d.BGSave == nil {
		return resp.Error("ERR persistence is not configured"), false, nil
	}
	started := d.BGSave()
	if !started {
		return resp.Error("ERR background save already in progress"), false, nil
	}
	return resp.SimpleString("Background saving started"), false, nil
}

func cmdAuth(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	if d.Password == "" {
		return resp.Error("ERR Client sent AUTH, but no password is set"), false, nil
	}
	if args[1] != d.Password {
		return resp.Error("WRONGPASS invalid username-password pair or user is disabled"), false, nil
	}
	conn.Authenticated = true
	return resp.OK(), false, nil
}

func cmdHello(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	fields := []string{
		"server", "hexagondb",
		"proto", "2",
		"mode", "standalone",
		"role", "master",
	}
	return resp.BulkStrings(fields), false, nil
}

func cmdQuit(d *Dispatcher, conn *ConnState, args []string) (resp.Value, bool, []string) {
	return resp.OK(), false, nil
}
