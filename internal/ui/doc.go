// Package ui contains the Bubble Tea program that draws a surface.Screen and
// feeds terminal input to the list manager.
//
// Message flow:
//   - Bubble Tea invokes Model.Update with incoming messages, routed through a
//     typed handler registry so each tea.Msg is handled by a focused function.
//   - Keys, pastes and mouse events become requests on a command.Bus. The bus
//     runs them one at a time on its own goroutine (Model.Run), so a slow
//     action never stalls rendering and keys are never reordered.
//   - Model.Pump turns finished requests and screen change notifications
//     into messages for the program. After each one the model checks whether
//     any list is still visible and exits when none is.
//
// A pending choice blocks the bus, so keys are answered directly against the
// screen while Screen.Choosing reports true.
package ui
