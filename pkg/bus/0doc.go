// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bus describes the local application bus, which executes relayed calls on an agent and originates them on
// a console.
//
// A Dispatcher accepts a Request, addressed by its Topic and Action, and either answers it synchronously or fires and
// forgets it. The Router is a Dispatcher backed by an explicit registration table, filled at startup.
package bus
